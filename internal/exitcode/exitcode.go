package exitcode

const (
	Success        = 0
	UsageError     = 1
	ConfigError    = 2
	InputError     = 3
	StoreError     = 4
	RenderError    = 5
	PartialSuccess = 6
)
