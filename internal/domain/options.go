package domain

// Option is one answer code offered in a dropdown.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options is an ordered option list.
type Options []Option

// Label returns the label for code, or code itself when it is unknown.
func (o Options) Label(code string) string {
	for _, opt := range o {
		if opt.Value == code {
			return opt.Label
		}
	}
	return code
}

// Has reports whether code is one of the options.
func (o Options) Has(code string) bool {
	for _, opt := range o {
		if opt.Value == code {
			return true
		}
	}
	return false
}

// ParashaAnswers are the answer codes for the weekly portion question.
var ParashaAnswers = Options{
	{Value: "A", Label: "תשובה נכונה"},
	{Value: "B", Label: "תשובה שגויה"},
	{Value: "C", Label: "לא השיב"},
	{Value: "D", Label: "פסול"},
}

// HalachaAnswers are the answer codes for the halacha study question.
var HalachaAnswers = Options{
	{Value: "H1", Label: "תשובה נכונה"},
	{Value: "H2", Label: "תשובה שגויה"},
	{Value: "H3", Label: "לא השיב"},
}
