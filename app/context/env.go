package context

// Environment is the interface to the process environment.
type Environment interface {
	Get(string) string
	Set(string, string) error
	// Environ returns all environment values in "key=value" form.
	Environ() []string
}
