package audio

// Drain reads from ch until it is closed, discarding all values. Sinks call
// it on early exit so a synthesiser blocked on a send can finish.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
