package speech

import "fmt"

// OpenerFor возвращает конструктор движка по его типу.
func OpenerFor(kind Kind) (Opener, error) {
	switch kind {
	case KindWhisper, "":
		return NewWhisper, nil
	case KindVosk:
		return NewVosk, nil
	default:
		return nil, fmt.Errorf("unknown speech engine: %s", kind)
	}
}

// Open создаёт сессию движка и помечает ошибку инициализации как ErrEngine.
func Open(open Opener, modelPath string, params ContextParams) (Engine, error) {
	engine, err := open(modelPath, params)
	if err != nil {
		return nil, fmt.Errorf("%w: init %q: %w", ErrEngine, modelPath, err)
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: init %q returned no handle", ErrEngine, modelPath)
	}
	return engine, nil
}
