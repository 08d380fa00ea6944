package tools

import (
	"context"
	"time"

	"github.com/liuscraft/jowie/internal/chat"
)

const dateLayout = "Monday, January 02 2006"

// NewDateTool get_date()，now 为空时使用 time.Now
func NewDateTool(now func() time.Time) Tool {
	if now == nil {
		now = time.Now
	}
	return Tool{
		Spec: chat.ToolSpec{
			Name:        "get_date",
			Description: "Get the current date.",
		},
		Run: func(context.Context, Args) (string, error) {
			return now().Format(dateLayout), nil
		},
	}
}
