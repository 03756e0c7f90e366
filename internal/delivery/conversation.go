package delivery

import "sort"

// ConversationID returns the id shared by both participants of a pair: the
// two normalized identities sorted and joined with a comma. Normalized
// identities never contain a comma, so distinct pairs never collide.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "," + pair[1]
}
