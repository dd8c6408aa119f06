package worksheet

import (
	"context"
	"fmt"

	"github.com/andresuchdata/po-tool/internal/domain"
	"github.com/andresuchdata/po-tool/internal/pipeline"
	"github.com/andresuchdata/po-tool/internal/repository"
	"github.com/andresuchdata/po-tool/internal/retry"
)

// FileCopier is the drive capability used to create worksheets.
type FileCopier interface {
	CopyTemplate(ctx context.Context, templateID, name, folderID string) (string, error)
	GrantAccess(ctx context.Context, fileID string, emails []string, role string) error
}

// CreatorConfig names the templates and the folder new worksheets land in.
type CreatorConfig struct {
	ATSTemplateID    string
	NonATSTemplateID string
	FolderID         string
	GrantEmails      []string
	Retry            retry.Policy
}

// Creator copies the worksheet template for a new purchase order.
type Creator struct {
	files  FileCopier
	orders repository.PurchaseOrderRepository
	cfg    CreatorConfig
}

func NewCreator(files FileCopier, orders repository.PurchaseOrderRepository, cfg CreatorConfig) *Creator {
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = retry.Exponential(3)
	}
	return &Creator{files: files, orders: orders, cfg: cfg}
}

func (c *Creator) Name() domain.Stage { return domain.StageCreateWorksheet }

func (c *Creator) Run(ctx context.Context, run *pipeline.Run) (domain.Status, error) {
	if _, err := run.Worksheet(); err == nil {
		run.Log(ctx, "Worksheet already exists.")
		return domain.StatusWorksheetCreated, nil
	}

	template := c.cfg.NonATSTemplateID
	if run.PO.IsATS {
		template = c.cfg.ATSTemplateID
	}

	// The copy is kept across attempts so a failed grant never leaves a second copy behind.
	var worksheetID string
	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context, attempt int) error {
		if worksheetID == "" {
			id, err := c.files.CopyTemplate(ctx, template, run.PO.Name, c.cfg.FolderID)
			if err != nil {
				run.Error(ctx, fmt.Sprintf("Failed to copy worksheet template (Attempt: %d). %s", attempt, err))
				return err
			}
			worksheetID = id
		}
		if len(c.cfg.GrantEmails) > 0 {
			if err := c.files.GrantAccess(ctx, worksheetID, c.cfg.GrantEmails, "writer"); err != nil {
				run.Error(ctx, fmt.Sprintf("Failed to share worksheet (Attempt: %d). %s", attempt, err))
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create worksheet: %w", err)
	}

	if err := c.orders.SetWorksheet(ctx, run.PO.ID, worksheetID); err != nil {
		return "", fmt.Errorf("record worksheet: %w", err)
	}
	run.PO.WorksheetID = &worksheetID
	run.Log(ctx, "Worksheet created.")
	return domain.StatusWorksheetCreated, nil
}
