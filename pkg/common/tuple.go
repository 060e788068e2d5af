package common

// EmptyTuple is the input type of operators that take no input.
type EmptyTuple struct {
}
