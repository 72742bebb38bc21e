package health

import (
	"sort"

	"github.com/hyperke/client-health/internal/model"
)

type managerRole struct {
	id   func(*model.Client) *string
	name func(*model.Client) **string
}

var managerRoles = []managerRole{
	{func(c *model.Client) *string { return c.AccountManagerID }, func(c *model.Client) **string { return &c.AccountManagerName }},
	{func(c *model.Client) *string { return c.InboxManagerID }, func(c *model.Client) **string { return &c.InboxManagerName }},
	{func(c *model.Client) *string { return c.SDRID }, func(c *model.Client) **string { return &c.SDRName }},
}

// BackfillManagers fills an empty manager name from the lowest-id client
// that shares the manager id and has a name. It returns a copy and the
// number of names filled. The local store applies the same rule in SQL.
func BackfillManagers(clients []model.Client) ([]model.Client, int) {
	out := make([]model.Client, len(clients))
	copy(out, clients)

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return out[order[a]].ID < out[order[b]].ID })

	filled := 0
	for _, role := range managerRoles {
		known := make(map[string]*string)
		for _, i := range order {
			c := &out[i]
			id, name := role.id(c), *role.name(c)
			if id == nil || name == nil || *name == "" {
				continue
			}
			if _, ok := known[*id]; !ok {
				known[*id] = name
			}
		}
		for i := range out {
			c := &out[i]
			id, name := role.id(c), role.name(c)
			if id == nil || (*name != nil && **name != "") {
				continue
			}
			if src, ok := known[*id]; ok {
				v := *src
				*name = &v
				filled++
			}
		}
	}
	return out, filled
}
