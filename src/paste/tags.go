package paste

import "strings"

// Tag is one of the suggested labels together with its display colour.
type Tag struct {
	Name  string
	Color string
}

// Tags are the labels offered by the editor. Users may type any other tag.
var Tags = []Tag{
	{Name: "Code", Color: "blue"},
	{Name: "Note", Color: "green"},
	{Name: "Idea", Color: "purple"},
	{Name: "Todo", Color: "amber"},
	{Name: "Important", Color: "red"},
	{Name: "Reference", Color: "indigo"},
	{Name: "Other", Color: "gray"},
}

// TagColor returns the colour of a tag, gray for unknown tags.
func TagColor(name string) string {
	for _, t := range Tags {
		if strings.EqualFold(t.Name, strings.TrimSpace(name)) {
			return t.Color
		}
	}
	return "gray"
}
