package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/skuflow/skuflow/pkg/cleaner"
	"github.com/skuflow/skuflow/pkg/model"
	"github.com/skuflow/skuflow/pkg/schema"
	"github.com/skuflow/skuflow/pkg/table"
	"github.com/skuflow/skuflow/pkg/transform"
	"github.com/skuflow/skuflow/pkg/validation"
)

// RunContext carries the intermediate results of one run from stage to
// stage.
type RunContext struct {
	Upload      *model.Upload
	Options     ProcessingOptions
	Raw         *table.RawTable
	Schema      *schema.TableSchema
	Cleaned     *cleaner.CleanedTable
	Issues      []validation.Issue
	Transformed *transform.Table
	Report      *ProcessingReport

	started        time.Time
	persistStarted bool
	log            *zap.Logger
}

func (o *Orchestrator) newRunContext(u *model.Upload, opts ProcessingOptions) *RunContext {
	return &RunContext{
		Upload:  u,
		Options: opts,
		Report:  newReport(u.ID),
		started: time.Now(),
		log:     o.logger.With(zap.String("upload_id", u.ID)),
	}
}
