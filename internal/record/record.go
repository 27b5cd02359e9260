// Package record defines the fixed-shape comment row and its NDJSON decoding.
package record

// Columns is the on-disk column order of the comments table. Values returns
// fields in the same order.
var Columns = []string{
	"score_hidden",
	"name",
	"link_id",
	"body",
	"sanitized_body",
	"downs",
	"created_utc",
	"score",
	"author",
	"distinguished",
	"id",
	"archived",
	"parent_id",
	"subreddit",
	"author_flair_css_class",
	"author_flair_text",
	"gilded",
	"retrieved_on",
	"ups",
	"controversiality",
	"subreddit_id",
	"edited",
	"is_locked",
}

// Record is one ingested comment.
type Record struct {
	ScoreHidden         int64
	Name                string
	LinkID              string
	Body                string
	SanitizedBody       string
	Downs               int64
	CreatedUTC          int64
	Score               int64
	Author              string
	Distinguished       string
	ID                  string
	Archived            int64
	ParentID            string
	Subreddit           string
	AuthorFlairCSSClass string
	AuthorFlairText     string
	Gilded              int64
	RetrievedOn         int64
	Ups                 int64
	Controversiality    int64
	SubredditID         string
	Edited              int64
	IsLocked            int64
}

// Values returns the record as statement arguments in Columns order.
func (r *Record) Values() []any {
	return []any{
		r.ScoreHidden,
		r.Name,
		r.LinkID,
		r.Body,
		r.SanitizedBody,
		r.Downs,
		r.CreatedUTC,
		r.Score,
		r.Author,
		r.Distinguished,
		r.ID,
		r.Archived,
		r.ParentID,
		r.Subreddit,
		r.AuthorFlairCSSClass,
		r.AuthorFlairText,
		r.Gilded,
		r.RetrievedOn,
		r.Ups,
		r.Controversiality,
		r.SubredditID,
		r.Edited,
		r.IsLocked,
	}
}
