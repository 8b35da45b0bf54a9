package remote

import "testing"

func TestDomainComposition(t *testing.T) {
	tests := []struct {
		name string
		d    Domain
		want string
	}{
		{"empty", And(), `[]`},
		{"single part is not wrapped", And(Eq("state", "done")), `[["state","=","done"]]`},
		{"and of three", And(Eq("a", 1), Eq("b", 2), Eq("c", 3)), `["&","&",["a","=",1],["b","=",2],["c","=",3]]`},
		{"or skips empty parts", Or(Domain{}, Cond("vat", "!=", false), Cond("document_number", "!=", false)), `["|",["vat","!=",false],["document_number","!=",false]]`},
		{"nested", And(NotIn("id", []int{1, 2}), Or(Eq("x", 1), Eq("y", 2))), `["&",["id","not in",[1,2]],"|",["x","=",1],["y","=",2]]`},
		{"not", Not(Eq("active", true)), `["!",["active","=",true]]`},
		{"nil in list", In[int]("id", nil), `[["id","in",[]]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.String(); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}
