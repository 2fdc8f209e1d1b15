//go:build !llama

package llm

// LoadLlama is unavailable without the llama build tag.
func LoadLlama(path string, p ModelParams) (Model, error) {
	return nil, ErrUnavailable
}
