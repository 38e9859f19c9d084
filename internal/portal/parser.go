package portal

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/gradewatch/gradewatch/internal/monitor"
)

// Survey markers shown by the portal instead of the grade table when a
// course evaluation survey is pending.
var surveyMarkers = []string{
	"survey layout",
	"anketi açmak için",
}

// Parser turns a grade page into a Snapshot. Course rows carry
// rowspan="2" on their first cell; the following row holds a nested table of
// exam label/score pairs.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts the course table. It returns an error wrapping
// monitor.ErrBlockingCondition when the page shows a pending survey, and one
// wrapping monitor.ErrParse when no grade table is present.
func (p *Parser) Parse(accountID string, content []byte) (monitor.Snapshot, error) {
	lowered := strings.ToLower(string(content))
	for _, marker := range surveyMarkers {
		if strings.Contains(lowered, marker) {
			return monitor.Snapshot{}, fmt.Errorf("%w: pending course survey", monitor.ErrBlockingCondition)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("%w: %v", monitor.ErrParse, err)
	}

	table := doc.Find("div.table-responsive table").First()
	if table.Length() == 0 {
		return monitor.Snapshot{}, fmt.Errorf("%w: grade table not found", monitor.ErrParse)
	}

	var courses []monitor.Course
	rows := table.Find("tr")
	rows.Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		if rowspan, _ := cells.First().Attr("rowspan"); rowspan != "2" {
			return
		}
		name := strings.TrimSpace(cells.Eq(1).Text())
		if name == "" {
			return
		}
		course := monitor.Course{Name: name}
		if i+1 < rows.Length() {
			course.Exams = parseExamRow(rows.Eq(i + 1))
		}
		courses = append(courses, course)
	})

	if len(courses) == 0 {
		return monitor.Snapshot{}, fmt.Errorf("%w: grade table has no course rows", monitor.ErrParse)
	}
	return monitor.Snapshot{AccountID: accountID, Courses: courses}, nil
}

// parseExamRow reads the nested exam table inside a course's second row.
func parseExamRow(row *goquery.Selection) []monitor.ExamRecord {
	var exams []monitor.ExamRecord
	row.Find("table tr").Each(func(_ int, examRow *goquery.Selection) {
		cells := examRow.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		score := strings.TrimSpace(cells.Eq(1).Text())
		if label == "" {
			return
		}
		exams = append(exams, monitor.ExamRecord{Label: label, Score: score})
	})
	return exams
}
