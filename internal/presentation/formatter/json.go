package formatter

import (
	"io"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-station-timeline/internal/core/model"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

type jsonScope struct {
	Scope     string                `json:"scope"`
	Status    string                `json:"status"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt string                `json:"updated_at,omitempty"`
	Total     int                   `json:"total"`
	Groups    []model.TimelineGroup `json:"groups"`
}

func (f *JSONFormatter) Format(w io.Writer, views []ScopeView) error {
	out := make([]jsonScope, 0, len(views))
	for _, v := range views {
		s := jsonScope{
			Scope:  v.Scope,
			Status: v.Status,
			Total:  v.Total,
			Groups: v.Groups,
		}
		if s.Groups == nil {
			s.Groups = []model.TimelineGroup{}
		}
		if v.Err != nil {
			s.Error = v.Err.Error()
		}
		if !v.UpdatedAt.IsZero() {
			s.UpdatedAt = v.UpdatedAt.UTC().Format(model.ISOLayout)
		}
		out = append(out, s)
	}

	data, err := sonic.ConfigDefault.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
