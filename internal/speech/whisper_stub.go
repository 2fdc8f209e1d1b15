//go:build !whisper

package speech

// NewWhisper недоступен без тега whisper.
func NewWhisper(modelPath string, params ContextParams) (Engine, error) {
	return nil, ErrUnavailable
}
