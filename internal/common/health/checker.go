package health

// Checker reports nil when a component is healthy.
type Checker interface {
	Check() error
}
