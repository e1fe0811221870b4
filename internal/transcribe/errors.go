package transcribe

import "fmt"

// EngineError はどの段階で失敗したかを保持するエラーです。
type EngineError struct {
	Stage   string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

// Unwrap は errors.Is / errors.As のために元のエラーを返します。
func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
