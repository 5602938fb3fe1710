package matcher

import "testing"

func TestDomainTrieSuffixMatch(t *testing.T) {
	trie := NewDomainTrie()
	trie.Insert("apple.com")
	trie.Insert("apple.cn")

	cases := []struct {
		name string
		want bool
	}{
		{"store.apple.com", true},
		{"store.apple.com.", true},
		{"apple.com", true},
		{"baidu.com", false},
		{"你好.store.www.apple.cn", true},
		{"notapple.com", false},
	}
	for _, tc := range cases {
		if got := trie.Matches(tc.name); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDomainTrieInsertRejectsInvalidText(t *testing.T) {
	trie := NewDomainTrie()
	trie.Insert("# apple.com")
	trie.Insert("*** apple.com")

	if trie.Size() != 0 {
		t.Fatalf("expected invalid entries to be rejected, size = %d", trie.Size())
	}
	if trie.Matches("apple.com") {
		t.Fatalf("apple.com should not match after only invalid inserts")
	}
}

func TestDomainTrieAllowsHyphenatedLabels(t *testing.T) {
	trie := NewDomainTrie()
	trie.Insert("apple-cn.com")

	if trie.Size() != 1 {
		t.Fatalf("expected hyphenated domain to be accepted, size = %d", trie.Size())
	}
	if !trie.Matches("www.apple-cn.com") {
		t.Fatal("expected subdomain of hyphenated rule to match")
	}
}

func TestDomainTrieInsertMultiSplitsLines(t *testing.T) {
	trie := NewDomainTrie()
	trie.InsertMulti("apple.com\n# comment\n\nbaidu.com\n")

	if trie.Size() != 2 {
		t.Fatalf("expected 2 rules inserted, got %d", trie.Size())
	}
	if !trie.Matches("www.apple.com") || !trie.Matches("www.baidu.com") {
		t.Fatal("expected both inserted rules to match their subdomains")
	}
}

func TestDomainTrieEmptyNameOnEmptyTrie(t *testing.T) {
	trie := NewDomainTrie()
	if !trie.Matches("") {
		t.Fatal("an empty name should match trivially against a fresh trie")
	}
	trie.Insert("apple.com")
	if trie.Matches("") {
		t.Fatal("an empty name should not match once the trie has rules")
	}
}

func TestDomainTrieShorterQueryThanRuleDoesNotMatch(t *testing.T) {
	trie := NewDomainTrie()
	trie.Insert("store.apple.com")

	if trie.Matches("apple.com") {
		t.Fatal("a name shorter than the inserted rule must not match")
	}
	if !trie.Matches("a.store.apple.com") {
		t.Fatal("a subdomain of the full rule must match")
	}
}
