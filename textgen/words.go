// textgen/words.go
package textgen

var nouns = []string{
	"river", "mountain", "keyboard", "library", "engine", "garden", "window",
	"harbor", "lantern", "market", "bridge", "forest", "compass", "journal",
	"bicycle", "kitchen", "station", "village", "bottle", "mirror", "anchor",
	"circuit", "planet", "teacher", "painter", "sailor", "farmer", "writer",
	"machine", "shadow", "signal", "ticket", "valley", "winter", "morning",
	"ocean", "island", "castle", "candle", "hammer", "needle", "orchard",
}

var adjectives = []string{
	"quiet", "bright", "ancient", "curious", "gentle", "hollow", "rapid",
	"steady", "narrow", "golden", "distant", "careful", "clever", "humble",
	"patient", "restless", "simple", "sturdy", "vivid", "warm", "eager",
	"crooked", "faithful", "graceful", "modest", "peculiar", "silent",
}

var verbs = []string{
	"carry", "follow", "gather", "wander", "repair", "discover", "measure",
	"deliver", "observe", "polish", "sketch", "whisper", "assemble", "borrow",
	"climb", "collect", "explore", "guard", "invent", "remember", "travel",
	"wonder", "answer", "listen", "paint", "plant", "sail", "study",
}

var phrases = []string{
	"as a matter of fact",
	"oddly enough",
	"against all odds",
	"after a long silence",
	"without much warning",
	"to everyone's surprise",
	"in the early hours",
	"for reasons unknown",
}

// templates are expanded by replacing each {{ action }} placeholder with a
// randomly chosen word in the requested form.
var templates = []string{
	"the {{ adjective }} {{ noun }} near the {{ noun }} {{ verbs }} {{ a_noun }}",
	"{{ a_noun }} {{ verbs }} beside the {{ adjective }} {{ noun }}",
	"every {{ noun }} {{ verbs }} toward {{ an_adjective }} {{ noun }}",
	"the {{ noun }} {{ verb_past }} while the {{ nouns }} {{ verb_past }}",
	"{{ an_adjective }} {{ noun }} kept {{ verb_present_participle }} past the {{ nouns }}",
	"nobody expected the {{ noun }} to {{ verb }} the {{ adjective }} {{ noun }}",
	"{{ nouns }} rarely {{ verb }} without {{ a_noun }}",
	"the {{ adjective }} {{ nouns }} {{ verb_past }} across the {{ noun }}",
	"she watched the {{ noun }} {{ verb }} {{ an_adjective }} {{ noun }}",
	"they chose to {{ verb }} the {{ noun }} before {{ verb_present_participle }} home",
	"{{ a_noun }} and {{ a_noun }} {{ verb_past }} under the {{ adjective }} {{ noun }}",
	"the {{ noun }} was {{ adjective }}, so the {{ nouns }} kept {{ verb_present_participle }}",
}
