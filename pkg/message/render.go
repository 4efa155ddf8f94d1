package message

// Renderable is implemented by values that can be shown to a model as a
// message: summaries, file chunks, recorded errors and plain text.
type Renderable interface {
	Render() Message
}

// Text is the simplest Renderable: a role and a body.
type Text struct {
	Role    Role
	Content string
}

// Render implements Renderable.
func (t Text) Render() Message {
	return New(t.Role, t.Content)
}

// RenderAll renders each value in order.
func RenderAll[R Renderable](items []R) []Message {
	out := make([]Message, len(items))
	for i, it := range items {
		out[i] = it.Render()
	}
	return out
}
