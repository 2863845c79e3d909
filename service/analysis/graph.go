package analysis

import "sort"

// GraphNode is one vertex in the counterparty visualization graph.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"` // "central", "exchange", "bridge", "other"
	Size  int    `json:"size"`
}

// GraphLink is a weighted edge between the central wallet and a counterparty.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// GraphData is the counterparty graph rendered by downstream visualizations.
type GraphData struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// BuildGraph assembles the counterparty graph for a wallet: the wallet as the
// central node, one node per counterparty typed from the known-address
// tables, and edges weighted by interaction count. Node size grows with
// repeat interactions, capped so hubs do not dominate the layout.
func BuildGraph(centralWallet string, transactions []TransactionNode, known *KnownAddresses) GraphData {
	if known == nil {
		known = DefaultKnownAddresses()
	}

	nodes := map[string]*GraphNode{
		centralWallet: {ID: centralWallet, Label: "Me", Type: "central", Size: 20},
	}
	links := make(map[string]*GraphLink)

	var order []string // insertion order for deterministic output
	order = append(order, centralWallet)

	for _, tx := range transactions {
		for _, addr := range tx.Counterparties {
			node, ok := nodes[addr]
			if !ok {
				nodeType := "other"
				switch {
				case known.IsExchange(addr):
					nodeType = "exchange"
				case known.IsBridge(addr):
					nodeType = "bridge"
				case known.IsDeFiProtocol(addr):
					// DeFi protocols render as hub nodes alongside exchanges.
					nodeType = "exchange"
				}
				node = &GraphNode{ID: addr, Label: shortLabel(addr), Type: nodeType, Size: 8}
				nodes[addr] = node
				order = append(order, addr)
			}

			if node.ID != centralWallet {
				if node.Size < 30 {
					node.Size += 2
				}
			}

			key := linkKey(centralWallet, addr)
			if link, ok := links[key]; ok {
				link.Weight++
			} else {
				links[key] = &GraphLink{Source: centralWallet, Target: addr, Weight: 1}
			}
		}
	}

	out := GraphData{
		Nodes: make([]GraphNode, 0, len(nodes)),
		Links: make([]GraphLink, 0, len(links)),
	}
	for _, id := range order {
		out.Nodes = append(out.Nodes, *nodes[id])
	}
	for _, link := range links {
		out.Links = append(out.Links, *link)
	}
	sort.Slice(out.Links, func(i, j int) bool { return out.Links[i].Target < out.Links[j].Target })

	return out
}

func shortLabel(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + "..." + addr[len(addr)-4:]
}

func linkKey(a, b string) string {
	if a < b {
		return a + "-" + b
	}
	return b + "-" + a
}
