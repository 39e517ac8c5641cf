package todo

import (
	"context"
	"log/slog"

	"github.com/jomei/notionapi"

	"github.com/tkoster/inkbridge/internal/registry"
	"github.com/tkoster/inkbridge/internal/task"
)

// pageCreator is the slice of the Notion client we use, kept as an
// interface so tests can substitute a fake.
type pageCreator interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// Notion creates one page per task in a Notion database.
type Notion struct {
	pages      pageCreator
	databaseID notionapi.DatabaseID
}

func NewNotion(token, databaseID string) *Notion {
	client := notionapi.NewClient(notionapi.Token(token))
	return &Notion{
		pages:      client.Page,
		databaseID: notionapi.DatabaseID(databaseID),
	}
}

func (n *Notion) Name() string { return "notion" }

func (n *Notion) SyncTasks(ctx context.Context, tasks []task.Task, tc TodoContext) []registry.SyncResult {
	results := make([]registry.SyncResult, 0, len(tasks))
	for _, t := range tasks {
		res := registry.SyncResult{LocalID: t.LocalID, Provider: n.Name()}

		page, err := n.pages.Create(ctx, n.pageRequest(t, tc))
		if err != nil {
			res.Status = registry.StatusFailed
			res.Error = err.Error()
			slog.Warn("notion task creation failed",
				"bridge", tc.Bridge, "local_id", t.LocalID, "error", err)
		} else {
			res.Status = registry.StatusCreated
			res.ExternalID = string(page.ID)
		}
		results = append(results, res)

		if ctx.Err() != nil {
			break
		}
	}
	return results
}

func (n *Notion) pageRequest(t task.Task, tc TodoContext) *notionapi.PageCreateRequest {
	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.databaseID,
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: []notionapi.RichText{
					{Text: &notionapi.Text{Content: t.Title}},
				},
			},
		},
		Children: []notionapi.Block{
			&notionapi.ParagraphBlock{
				BasicBlock: notionapi.BasicBlock{
					Object: "block",
					Type:   notionapi.BlockTypeParagraph,
				},
				Paragraph: notionapi.Paragraph{
					RichText: []notionapi.RichText{
						{Text: &notionapi.Text{Content: taskDescription(t, tc)}},
					},
				},
			},
		},
	}
}
