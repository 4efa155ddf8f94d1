package memory

import (
	"encoding/json"
	"fmt"

	"github.com/voidKandy/espionox-sub001/pkg/message"
)

type viewRecord struct {
	ID             string            `json:"id"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	ModelGenerated bool              `json:"model_generated,omitempty"`
	Kind           string            `json:"kind,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// EncodeView serializes a checkpointed live view for a Store.
func EncodeView(msgs []message.Message) ([]byte, error) {
	records := make([]viewRecord, len(msgs))
	for i, m := range msgs {
		md := m.Metadata()
		records[i] = viewRecord{
			ID:             m.ID(),
			Role:           m.Role().String(),
			Content:        m.Content(),
			ModelGenerated: md.ModelGenerated,
			Kind:           string(md.Kind),
			Extra:          md.Extra,
		}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("memory: encode view: %w", err)
	}
	return data, nil
}

// DecodeView is the inverse of EncodeView.
func DecodeView(data []byte) ([]message.Message, error) {
	var records []viewRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("memory: decode view: %w", err)
	}
	msgs := make([]message.Message, len(records))
	for i, r := range records {
		msgs[i] = message.Restore(r.ID, message.ParseRole(r.Role), r.Content, message.Metadata{
			ModelGenerated: r.ModelGenerated,
			Kind:           message.Kind(r.Kind),
			Extra:          r.Extra,
		})
	}
	return msgs, nil
}
