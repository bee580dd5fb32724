package mutation

import "testing"

func activityNode(urn string) Node {
	return Node{NodeType: ElementNode, Tag: "div", URN: urn, HasURN: true, HTML: `<div data-urn="` + urn + `"></div>`}
}

func TestActivityAppend(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"single activity", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{activityNode("urn:li:activity:1")}}, true},
		{"urn contains marker", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{activityNode("x-urn:li:activity:1")}}, true},
		{"batched insert", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{activityNode("urn:li:activity:1"), activityNode("urn:li:activity:2")}}, false},
		{"no added nodes", Record{Type: ChildList, TargetType: ElementNode, Removed: 1}, false},
		{"text node", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{{NodeType: TextNode}}}, false},
		{"element without urn", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{{NodeType: ElementNode, Tag: "div"}}}, false},
		{"empty urn attribute", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{{NodeType: ElementNode, HasURN: true}}}, false},
		{"other urn", Record{Type: ChildList, TargetType: ElementNode, Added: []Node{activityNode("urn:li:aggregate:1")}}, false},
		{"attribute change", Record{Type: Attributes, TargetType: ElementNode, Attribute: "data-urn"}, false},
		{"character data", Record{Type: CharacterData, TargetType: TextNode}, false},
		{"non-element target", Record{Type: ChildList, TargetType: 11, Added: []Node{activityNode("urn:li:activity:1")}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := tt.rec.ActivityAppend()
			if ok != tt.want {
				t.Fatalf("ActivityAppend: got %v, want %v", ok, tt.want)
			}
			if ok && n.URN != tt.rec.Added[0].URN {
				t.Errorf("URN: got %q, want %q", n.URN, tt.rec.Added[0].URN)
			}
		})
	}
}

func TestUnmarshalRecords(t *testing.T) {
	data := []byte(`[{"type":"childList","target_type":1,"added":[{"node_type":1,"tag":"div","urn":"urn:li:activity:9","has_urn":true,"html":"<div></div>"}]},{"type":"attributes","target_type":1,"attribute":"class"}]`)
	rs, err := UnmarshalRecords(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(rs) != 2 {
		t.Fatalf("records: got %d, want 2", len(rs))
	}
	if n, ok := rs[0].ActivityAppend(); !ok || n.URN != "urn:li:activity:9" {
		t.Errorf("record 0: got %+v ok=%v", n, ok)
	}
	if _, ok := rs[1].ActivityAppend(); ok {
		t.Error("record 1: attribute record must be ignored")
	}
}
