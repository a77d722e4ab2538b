package util

// Stack is a LIFO of arbitrary values used by the iterative tree walks
// in the query compiler and the SQL renderer.
type Stack struct {
	st []interface{}
}

func NewStack() *Stack {
	return &Stack{st: make([]interface{}, 0, 20)}
}

func (s *Stack) Len() int {
	return len(s.st)
}

// Peek returns the top item without removing it, nil when empty.
func (s *Stack) Peek() interface{} {
	if len(s.st) == 0 {
		return nil
	}
	return s.st[len(s.st)-1]
}

// Pop removes and returns the top item, nil when empty.
func (s *Stack) Pop() interface{} {
	n := len(s.st)
	if n == 0 {
		return nil
	}
	v := s.st[n-1]
	s.st[n-1] = nil
	s.st = s.st[:n-1]
	return v
}

func (s *Stack) Push(value interface{}) {
	s.st = append(s.st, value)
}
