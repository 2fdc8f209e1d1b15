//go:build !vosk

package speech

// NewVosk недоступен без тега vosk.
func NewVosk(modelPath string, params ContextParams) (Engine, error) {
	return nil, ErrUnavailable
}
