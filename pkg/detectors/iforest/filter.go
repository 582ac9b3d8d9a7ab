package iforest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hed1ad/anomalyscore/pkg/fields"
)

// Filter returns a Flatline expression selecting the top anomalies rows
// of the training dataset, or every other row when include is false. It is
// empty when the detector has no top anomalies.
func (f *IsolationForest) Filter(include bool) string {
	ids := make(map[string]bool, len(f.idFields))
	for _, id := range f.idFields {
		ids[id] = true
	}

	var filters []string
	for _, a := range f.topAnomalies {
		var rules []string
		for i, cell := range a.Row {
			if i >= len(f.inputFields) {
				break
			}
			id := f.inputFields[i]
			if ids[id] {
				continue
			}
			if cell.Kind == kindNone || (cell.Kind == kindString && cell.Str == "") {
				rules = append(rules, fmt.Sprintf(`(missing? "%s")`, id))
				continue
			}
			rules = append(rules, fmt.Sprintf(`(= (f "%s") %s)`, id, f.flatlineValue(id, cell)))
		}
		if len(rules) > 0 {
			filters = append(filters, "(and "+strings.Join(rules, " ")+")")
		}
	}

	if len(filters) == 0 {
		return ""
	}
	joined := strings.Join(filters, " ")
	if include {
		if len(filters) == 1 {
			return joined
		}
		return "(or " + joined + ")"
	}
	return "(not (or " + joined + "))"
}

// flatlineValue renders a top anomaly cell. Only string cells of categorical
// and text fields are quoted.
func (f *IsolationForest) flatlineValue(id string, cell operand) string {
	switch cell.Kind {
	case kindNumber:
		return strconv.FormatFloat(cell.Num, 'f', -1, 64)
	case kindBool:
		return strconv.FormatBool(cell.Bool)
	}
	field, ok := f.fields.Lookup(id)
	if !ok || (field.Optype != fields.Categorical && field.Optype != fields.Text) {
		return cell.Str
	}
	b, err := json.Marshal(cell.Str)
	if err != nil {
		return strconv.Quote(cell.Str)
	}
	return string(b)
}
