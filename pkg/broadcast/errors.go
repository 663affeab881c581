package broadcast

import "fmt"

// HandlerPanicError describes a recovered panic raised by a Bus handler.
type HandlerPanicError struct {
	Topic string
	Value any
}

func (e HandlerPanicError) Error() string {
	return fmt.Sprintf("broadcast: handler for topic %s panicked: %v", e.Topic, e.Value)
}
