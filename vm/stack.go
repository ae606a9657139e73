// ABOUTME: Bounded root stack of object refs, the only source of GC roots
// ABOUTME: Overflow and underflow are reported as StackError without mutating

package vm

type stack struct {
	data  []Ref
	limit int
}

func newStack(limit int) *stack {
	return &stack{
		data:  make([]Ref, 0, limit),
		limit: limit,
	}
}

func (st *stack) len() int {
	return len(st.data)
}

// room fails if n more refs would not fit
func (st *stack) room(n int) error {
	if len(st.data)+n > st.limit {
		return &StackError{Err: ErrStackOverflow, Required: len(st.data) + n, Have: st.limit}
	}
	return nil
}

// require fails if fewer than n refs are present
func (st *stack) require(n int) error {
	if len(st.data) < n {
		return &StackError{Err: ErrStackUnderflow, Required: n, Have: len(st.data)}
	}
	return nil
}

func (st *stack) push(r Ref) error {
	if err := st.room(1); err != nil {
		return err
	}
	st.data = append(st.data, r)
	return nil
}

func (st *stack) pop() (Ref, error) {
	if err := st.require(1); err != nil {
		return Nil, err
	}
	r := st.data[len(st.data)-1]
	st.data[len(st.data)-1] = Nil
	st.data = st.data[:len(st.data)-1]
	return r, nil
}

func (st *stack) peek() (Ref, error) {
	if err := st.require(1); err != nil {
		return Nil, err
	}
	return st.data[len(st.data)-1], nil
}

// reset drops every root
func (st *stack) reset() {
	clear(st.data)
	st.data = st.data[:0]
}
