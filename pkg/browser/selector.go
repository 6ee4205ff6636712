package browser

import "fmt"

// Locator descriptions shared by every engine implementation so error
// messages read the same under test and against a real browser.

func DescribeCSS(selector string) string {
	return "css=" + selector
}

func DescribeRole(role, name string) string {
	if name == "" {
		return "role=" + role
	}
	return fmt.Sprintf("role=%s[name=%q]", role, name)
}

func DescribeLabel(label string) string {
	return fmt.Sprintf("label=%q", label)
}

func DescribeText(text string) string {
	return fmt.Sprintf("text=%q", text)
}

func DescribeFilter(parent, hasText string) string {
	return fmt.Sprintf("%s >> has-text=%q", parent, hasText)
}

func DescribeFirst(parent string) string {
	return parent + " >> nth=0"
}

func DescribeChild(parent, selector string) string {
	return parent + " >> " + DescribeCSS(selector)
}
