// Package models знает, где лежат модели, и умеет их скачивать.
package models

// Engine тип движка, для которого предназначена модель.
type Engine string

const (
	EngineWhisper Engine = "whisper"
	EngineVosk    Engine = "vosk"
	EngineLLM     Engine = "llm"
)

// ModelInfo информация о модели.
type ModelInfo struct {
	ID       string // Уникальный идентификатор: "whisper-medium-q8"
	Engine   Engine
	Name     string
	Filename string // Имя файла/директории внутри каталога движка
	URL      string
	Size     int64 // Приблизительный размер, если сервер не сообщил Content-Length
	IsZip    bool
}

// Registry все известные модели.
var Registry = []ModelInfo{
	{
		ID:       "whisper-tiny-q5",
		Engine:   EngineWhisper,
		Name:     "Whisper Tiny Q5",
		Filename: "ggml-tiny-q5_1.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny-q5_1.bin",
		Size:     32 * 1024 * 1024,
	},
	{
		ID:       "whisper-base-q5",
		Engine:   EngineWhisper,
		Name:     "Whisper Base Q5",
		Filename: "ggml-base-q5_1.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_1.bin",
		Size:     60 * 1024 * 1024,
	},
	{
		ID:       "whisper-medium-q8",
		Engine:   EngineWhisper,
		Name:     "Whisper Medium Q8",
		Filename: "ggml-medium-q8_0.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium-q8_0.bin",
		Size:     823 * 1024 * 1024,
	},
	{
		ID:       "whisper-turbo",
		Engine:   EngineWhisper,
		Name:     "Whisper Large v3 Turbo Q5",
		Filename: "ggml-large-v3-turbo-q5_0.bin",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo-q5_0.bin",
		Size:     574 * 1024 * 1024,
	},
	{
		ID:       "vosk-en-small",
		Engine:   EngineVosk,
		Name:     "Vosk English Small",
		Filename: "vosk-model-small-en-us-0.15",
		URL:      "https://alphacephei.com/vosk/models/vosk-model-small-en-us-0.15.zip",
		Size:     40 * 1024 * 1024,
		IsZip:    true,
	},
	{
		ID:       "llama-3.2-1b-instruct",
		Engine:   EngineLLM,
		Name:     "Llama 3.2 1B Instruct Q4_K_M",
		Filename: "Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		URL:      "https://huggingface.co/bartowski/Llama-3.2-1B-Instruct-GGUF/resolve/main/Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		Size:     808 * 1024 * 1024,
	},
	{
		ID:       "llama-3.2-3b-instruct",
		Engine:   EngineLLM,
		Name:     "Llama 3.2 3B Instruct Q4_K_M",
		Filename: "Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		URL:      "https://huggingface.co/bartowski/Llama-3.2-3B-Instruct-GGUF/resolve/main/Llama-3.2-3B-Instruct-Q4_K_M.gguf",
		Size:     2020 * 1024 * 1024,
	},
	{
		ID:       "qwen2.5-0.5b-instruct",
		Engine:   EngineLLM,
		Name:     "Qwen2.5 0.5B Instruct Q4_K_M",
		Filename: "qwen2.5-0.5b-instruct-q4_k_m.gguf",
		URL:      "https://huggingface.co/Qwen/Qwen2.5-0.5B-Instruct-GGUF/resolve/main/qwen2.5-0.5b-instruct-q4_k_m.gguf",
		Size:     386 * 1024 * 1024,
	},
}

// GetModel возвращает модель по ID.
func GetModel(id string) (ModelInfo, bool) {
	for _, m := range Registry {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// GetModelsByEngine возвращает модели для указанного движка.
func GetModelsByEngine(engine Engine) []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Engine == engine {
			result = append(result, m)
		}
	}
	return result
}
