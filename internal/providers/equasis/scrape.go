package equasis

import (
	"context"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ShipDetails is the parsed registry page for one hull number.
type ShipDetails struct {
	IMO      string
	FlagISO2 string
	Insurers []InsurerRecord
	Owners   []CompanyRecord
	Managers []CompanyRecord
}

// InsurerRecord is one P&I row. DateFrom is nil when the registry shows no
// inception date.
type InsurerRecord struct {
	Name     string
	DateFrom *time.Time
}

type CompanyRecord struct {
	Name     string
	Address  string
	DateFrom *time.Time
}

// ShipDetails fetches and parses the registry page for one IMO.
func (s *Scraper) ShipDetails(ctx context.Context, imo string) (ShipDetails, error) {
	form := url.Values{}
	form.Set("P_IMO", imo)

	body, err := s.fetch(ctx, s.config.SearchPath, form)
	if err != nil {
		return ShipDetails{}, err
	}
	if strings.Contains(body, "No ship corresponds") {
		return ShipDetails{}, ErrShipNotFound
	}
	details := parseShipPage(body)
	details.IMO = imo
	return details, nil
}

var (
	rowPattern  = regexp.MustCompile(`(?s)<tr[^>]*>(.*?)</tr>`)
	cellPattern = regexp.MustCompile(`(?s)<t[dh][^>]*>(.*?)</t[dh]>`)
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
	flagPattern = regexp.MustCompile(`(?i)flag\s*\(([A-Z]{2})\)`)
)

// parseShipPage extracts the fixed-shape tables the registry renders. The
// page is sectioned by headers; each section's rows are name / [address] /
// "since" date cells.
func parseShipPage(body string) ShipDetails {
	var details ShipDetails

	if match := flagPattern.FindStringSubmatch(body); match != nil {
		details.FlagISO2 = strings.ToUpper(match[1])
	}

	section := ""
	for _, row := range rowPattern.FindAllStringSubmatch(body, -1) {
		cells := cellText(row[1])
		if len(cells) == 0 {
			continue
		}
		// Section headers render as <th> cells; company names can contain
		// the same words ("Gard P&I"), so only header rows switch sections.
		if strings.Contains(strings.ToLower(row[1]), "<th") {
			if header := classifyHeader(cells[0]); header != "" {
				section = header
			}
			continue
		}

		switch section {
		case "insurer":
			if name := cells[0]; name != "" {
				details.Insurers = append(details.Insurers, InsurerRecord{
					Name:     name,
					DateFrom: dateFromCells(cells[1:]),
				})
			}
		case "owner", "manager":
			if name := cells[0]; name != "" {
				record := CompanyRecord{Name: name, DateFrom: dateFromCells(cells[1:])}
				if len(cells) > 1 {
					record.Address = cells[1]
				}
				if section == "owner" {
					details.Owners = append(details.Owners, record)
				} else {
					details.Managers = append(details.Managers, record)
				}
			}
		}
	}
	return details
}

func classifyHeader(cell string) string {
	lower := strings.ToLower(cell)
	switch {
	case strings.Contains(lower, "p&i") || strings.Contains(lower, "insurer"):
		return "insurer"
	case strings.Contains(lower, "registered owner") || lower == "owner":
		return "owner"
	case strings.Contains(lower, "ship manager") || strings.Contains(lower, "manager"):
		return "manager"
	default:
		return ""
	}
}

func cellText(row string) []string {
	matches := cellPattern.FindAllStringSubmatch(row, -1)
	cells := make([]string, 0, len(matches))
	for _, match := range matches {
		text := tagPattern.ReplaceAllString(match[1], " ")
		text = html.UnescapeString(text)
		text = strings.Join(strings.Fields(text), " ")
		cells = append(cells, strings.TrimSpace(text))
	}
	return cells
}

var datePattern = regexp.MustCompile(`(\d{2}/\d{2}/\d{4}|\d{2}/\d{4})`)

// dateFromCells finds the first "since DD/MM/YYYY" (or MM/YYYY) value.
func dateFromCells(cells []string) *time.Time {
	for _, cell := range cells {
		match := datePattern.FindString(cell)
		if match == "" {
			continue
		}
		for _, layout := range []string{"02/01/2006", "01/2006"} {
			if ts, err := time.Parse(layout, match); err == nil {
				ts = ts.UTC()
				return &ts
			}
		}
	}
	return nil
}
