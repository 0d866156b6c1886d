package book

import "github.com/nathanyu/matching-engine/internal/domain"

// levelTree keeps the price levels of one book side in a red-black tree
// keyed by price. Lookups and removals are O(log n); walks visit levels
// in price order. Not safe for concurrent use, the engine goroutine is
// the only caller.
type levelTree struct {
	root  *treeNode
	leaf  *treeNode // shared black sentinel
	count int
}

type treeNode struct {
	price  domain.Price
	level  *Level
	red    bool
	left   *treeNode
	right  *treeNode
	parent *treeNode
}

func newLevelTree() *levelTree {
	leaf := &treeNode{}
	return &levelTree{root: leaf, leaf: leaf}
}

func (t *levelTree) size() int { return t.count }

func (t *levelTree) find(price domain.Price) *Level {
	if n := t.lookup(price); n != t.leaf {
		return n.level
	}
	return nil
}

// getOrCreate returns the level at price, inserting an empty one when the
// price is not yet present.
func (t *levelTree) getOrCreate(price domain.Price) *Level {
	parent := t.leaf
	cur := t.root
	for cur != t.leaf {
		parent = cur
		switch {
		case price < cur.price:
			cur = cur.left
		case price > cur.price:
			cur = cur.right
		default:
			return cur.level
		}
	}

	n := &treeNode{
		price:  price,
		level:  newLevel(price),
		red:    true,
		left:   t.leaf,
		right:  t.leaf,
		parent: parent,
	}
	switch {
	case parent == t.leaf:
		t.root = n
	case price < parent.price:
		parent.left = n
	default:
		parent.right = n
	}
	t.rebalanceInsert(n)
	t.count++
	return n.level
}

func (t *levelTree) remove(price domain.Price) bool {
	n := t.lookup(price)
	if n == t.leaf {
		return false
	}
	t.unlinkNode(n)
	t.count--
	return true
}

// first returns the lowest-priced level, nil when the tree is empty.
func (t *levelTree) first() *Level {
	if n := t.subtreeMin(t.root); n != t.leaf {
		return n.level
	}
	return nil
}

// last returns the highest-priced level, nil when the tree is empty.
func (t *levelTree) last() *Level {
	if n := t.subtreeMax(t.root); n != t.leaf {
		return n.level
	}
	return nil
}

// ascend walks levels from the lowest price up until fn returns false.
func (t *levelTree) ascend(fn func(*Level) bool) {
	for n := t.subtreeMin(t.root); n != t.leaf; n = t.next(n) {
		if !fn(n.level) {
			return
		}
	}
}

// descend walks levels from the highest price down until fn returns false.
func (t *levelTree) descend(fn func(*Level) bool) {
	for n := t.subtreeMax(t.root); n != t.leaf; n = t.prev(n) {
		if !fn(n.level) {
			return
		}
	}
}

func (t *levelTree) lookup(price domain.Price) *treeNode {
	n := t.root
	for n != t.leaf {
		switch {
		case price < n.price:
			n = n.left
		case price > n.price:
			n = n.right
		default:
			return n
		}
	}
	return t.leaf
}

func (t *levelTree) subtreeMin(n *treeNode) *treeNode {
	if n == t.leaf {
		return t.leaf
	}
	for n.left != t.leaf {
		n = n.left
	}
	return n
}

func (t *levelTree) subtreeMax(n *treeNode) *treeNode {
	if n == t.leaf {
		return t.leaf
	}
	for n.right != t.leaf {
		n = n.right
	}
	return n
}

func (t *levelTree) next(n *treeNode) *treeNode {
	if n.right != t.leaf {
		return t.subtreeMin(n.right)
	}
	p := n.parent
	for p != t.leaf && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

func (t *levelTree) prev(n *treeNode) *treeNode {
	if n.left != t.leaf {
		return t.subtreeMax(n.left)
	}
	p := n.parent
	for p != t.leaf && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

func (t *levelTree) rotateLeft(x *treeNode) {
	y := x.right
	x.right = y.left
	if y.left != t.leaf {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.leaf:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *levelTree) rotateRight(x *treeNode) {
	y := x.left
	x.left = y.right
	if y.right != t.leaf {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == t.leaf:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *levelTree) rebalanceInsert(n *treeNode) {
	for n.parent.red {
		grand := n.parent.parent
		if n.parent == grand.left {
			uncle := grand.right
			if uncle.red {
				n.parent.red = false
				uncle.red = false
				grand.red = true
				n = grand
				continue
			}
			if n == n.parent.right {
				n = n.parent
				t.rotateLeft(n)
			}
			n.parent.red = false
			n.parent.parent.red = true
			t.rotateRight(n.parent.parent)
		} else {
			uncle := grand.left
			if uncle.red {
				n.parent.red = false
				uncle.red = false
				grand.red = true
				n = grand
				continue
			}
			if n == n.parent.left {
				n = n.parent
				t.rotateRight(n)
			}
			n.parent.red = false
			n.parent.parent.red = true
			t.rotateLeft(n.parent.parent)
		}
	}
	t.root.red = false
}

// replaceChild splices sub into old's position under old's parent. The
// sentinel's parent pointer is written on purpose; rebalanceDelete reads
// it when sub is the sentinel.
func (t *levelTree) replaceChild(old, sub *treeNode) {
	switch {
	case old.parent == t.leaf:
		t.root = sub
	case old == old.parent.left:
		old.parent.left = sub
	default:
		old.parent.right = sub
	}
	sub.parent = old.parent
}

func (t *levelTree) unlinkNode(n *treeNode) {
	moved := n
	movedWasRed := moved.red
	var fix *treeNode

	switch {
	case n.left == t.leaf:
		fix = n.right
		t.replaceChild(n, n.right)
	case n.right == t.leaf:
		fix = n.left
		t.replaceChild(n, n.left)
	default:
		moved = t.subtreeMin(n.right)
		movedWasRed = moved.red
		fix = moved.right
		if moved.parent == n {
			fix.parent = moved
		} else {
			t.replaceChild(moved, moved.right)
			moved.right = n.right
			moved.right.parent = moved
		}
		t.replaceChild(n, moved)
		moved.left = n.left
		moved.left.parent = moved
		moved.red = n.red
	}

	if !movedWasRed {
		t.rebalanceDelete(fix)
	}
}

func (t *levelTree) rebalanceDelete(n *treeNode) {
	for n != t.root && !n.red {
		if n == n.parent.left {
			sib := n.parent.right
			if sib.red {
				sib.red = false
				n.parent.red = true
				t.rotateLeft(n.parent)
				sib = n.parent.right
			}
			if !sib.left.red && !sib.right.red {
				sib.red = true
				n = n.parent
			} else {
				if !sib.right.red {
					sib.left.red = false
					sib.red = true
					t.rotateRight(sib)
					sib = n.parent.right
				}
				sib.red = n.parent.red
				n.parent.red = false
				sib.right.red = false
				t.rotateLeft(n.parent)
				n = t.root
			}
		} else {
			sib := n.parent.left
			if sib.red {
				sib.red = false
				n.parent.red = true
				t.rotateRight(n.parent)
				sib = n.parent.left
			}
			if !sib.right.red && !sib.left.red {
				sib.red = true
				n = n.parent
			} else {
				if !sib.left.red {
					sib.right.red = false
					sib.red = true
					t.rotateLeft(sib)
					sib = n.parent.left
				}
				sib.red = n.parent.red
				n.parent.red = false
				sib.left.red = false
				t.rotateRight(n.parent)
				n = t.root
			}
		}
	}
	n.red = false
}
