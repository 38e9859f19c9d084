package portal

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Resolver completes a pending course survey so the grade table becomes
// visible again. It finds the survey link on the blocking page, opens the
// survey form, fills every input with its first offered value, and submits.
type Resolver struct {
	logger *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Resolver{logger: logger}, nil
}

// Resolve walks the survey flow over the account's session.
func (r *Resolver) Resolve(ctx context.Context, s monitor.Session, content []byte) error {
	sess, ok := s.(*portalSession)
	if !ok {
		return fmt.Errorf("foreign session type %T", s)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("parse blocking page: %w", err)
	}

	link := surveyLink(doc)
	if link == "" {
		return fmt.Errorf("survey link not found on blocking page")
	}
	r.logger.Info("opening survey form",
		zap.String("account_id", sess.account.ID),
		zap.String("link", link))

	resp, err := sess.http.R().SetContext(ctx).Get(link)
	if err != nil {
		return fmt.Errorf("get survey form: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("get survey form: status %s", resp.Status())
	}

	formDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return fmt.Errorf("parse survey form: %w", err)
	}
	form := formDoc.Find("form").First()
	if form.Length() == 0 {
		return fmt.Errorf("survey page has no form")
	}

	action, _ := form.Attr("action")
	if action == "" {
		return fmt.Errorf("survey form has no action")
	}

	data := collectFormData(form)
	submit, err := sess.http.R().
		SetContext(ctx).
		SetFormData(data).
		Post(action)
	if err != nil {
		return fmt.Errorf("submit survey form: %w", err)
	}
	if submit.IsError() {
		return fmt.Errorf("submit survey form: status %s", submit.Status())
	}
	r.logger.Info("survey submitted", zap.String("account_id", sess.account.ID))
	return nil
}

// surveyLink locates the "open survey" button on the blocking page.
func surveyLink(doc *goquery.Document) string {
	var link string
	doc.Find("a.btn").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(a.Text()))
		if strings.Contains(text, "anket") && strings.Contains(text, "açmak") {
			link, _ = a.Attr("href")
			return false
		}
		return true
	})
	return link
}

// collectFormData selects an answer for every input. Radio and checkbox
// groups take the first offered value; submit buttons are skipped.
func collectFormData(form *goquery.Selection) map[string]string {
	data := make(map[string]string)
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		value, _ := input.Attr("value")
		if name == "" || value == "" {
			return
		}
		typ, _ := input.Attr("type")
		switch strings.ToLower(typ) {
		case "submit", "button":
			return
		case "radio", "checkbox":
			if _, taken := data[name]; !taken {
				data[name] = value
			}
		default:
			data[name] = value
		}
	})
	return data
}
