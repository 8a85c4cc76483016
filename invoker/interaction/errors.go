package interaction

// ProtocolError means the submission broke the interaction protocol, it is judged as wrong answer
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return e.Message
}
