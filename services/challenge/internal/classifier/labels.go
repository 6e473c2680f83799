package classifier

import "math/rand/v2"

// Classes is the label set of the food detection model. Challenge minting
// draws from it and submissions are matched against it, so the two stay in
// lockstep with the model by construction.
var Classes = []string{
	"Banh beo",
	"Banh bot loc",
	"Banh can",
	"Banh canh",
	"Banh chung",
	"Banh cuon",
	"Banh duc",
	"Banh gio",
	"Banh khot",
	"Banh mi",
	"Banh pia",
	"Banh tet",
	"Banh trang nuong",
	"Banh xeo",
	"Bun bo Hue",
	"Bun dau mam tom",
	"Bun mam",
	"Bun rieu",
	"Bun thit nuong",
	"Ca kho to",
	"Canh chua",
	"Cao lau",
	"Chao long",
	"Com tam",
	"Goi cuon",
	"Hu tieu",
	"Mi quang",
	"Nem chua",
	"Pho",
	"Xoi xeo",
}

// RandomClass picks a uniformly random label for a freshly minted challenge.
func RandomClass() string {
	return Classes[rand.IntN(len(Classes))]
}
