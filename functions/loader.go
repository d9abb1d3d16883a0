package functions

// Resolution labels record how a module's handler was found
const (
	ResolutionDefault = "default"
	ResolutionHandler = "handler"
	ResolutionGlobal  = "global"
	ResolutionExec    = "exec"
)

// Module is a loaded handler module
type Module struct {
	Handler    Handler
	Resolution string
}

// Loader turns a source file into a Module. Each loader owns a set of file
// extensions.
type Loader interface {
	// Kind names the handler runtime, e.g. "lua"
	Kind() string

	// Extensions lists the file extensions handled, including the dot
	Extensions() []string

	// Load resolves the handler exported by the file at source
	Load(source string) (*Module, error)
}

// DefaultLoaders returns the built-in loaders in registration order
func DefaultLoaders() []Loader {
	return []Loader{
		NewLuaLoader(),
		NewExecLoader(),
	}
}

// Extensions returns the recognized extensions of the given loaders, in order
func Extensions(loaders []Loader) []string {
	var exts []string
	seen := make(map[string]bool)
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				exts = append(exts, ext)
			}
		}
	}
	return exts
}
