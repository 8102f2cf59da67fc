package jsonld

import "github.com/goliatone/go-federation/core"

// Typed views over resolved nodes, in the shapes the gateway and the
// delivery queue expect.

func ActorView(node *Node) core.Actor {
	return core.Actor{
		ID:                node.ID,
		Type:              node.Type(),
		PreferredUsername: node.Text(core.AS.Term("preferredUsername"), "en", ""),
		Inbox:             node.Node(core.LDP.Term("inbox")),
		Endpoints:         node.Node(core.AS.Term("endpoints")),
	}
}

func EndpointsView(node *Node) core.Endpoints {
	return core.Endpoints{
		ID:          node.ID,
		SharedInbox: node.Node(core.AS.Term("sharedInbox")),
	}
}

func ActivityView(node *Node) core.Activity {
	return core.Activity{
		ID:     node.ID,
		Type:   node.Type(),
		Actor:  node.Node(core.AS.Term("actor")),
		Object: node.Node(core.AS.Term("object")),
	}
}

func ObjectView(node *Node) core.Object {
	return core.Object{
		ID:           node.ID,
		Type:         node.Type(),
		AttributedTo: node.Node(core.AS.Term("attributedTo")),
		InReplyTo:    node.Node(core.AS.Term("inReplyTo")),
		Content:      node.Text(core.AS.Term("content"), "en", ""),
		Tags:         node.Nodes(core.AS.Term("tag")),
	}
}

func TagView(node *Node) core.Tag {
	return core.Tag{
		ID:   node.ID,
		Type: node.Type(),
		Href: node.Node(core.AS.Term("href")),
	}
}

func PublicKeyView(node *Node) core.PublicKey {
	return core.PublicKey{
		ID:           node.ID,
		Owner:        node.Node(core.SEC.Term("owner")),
		PublicKeyPem: node.Text(core.SEC.Term("publicKeyPem"), ""),
	}
}
