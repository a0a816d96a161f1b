package layout

import "math"

// Roles a title-page block can be suggested for.
const (
	RoleVoice    = "Stimme"
	RoleComposer = "Komponist"
	RoleTitle    = "Titel"
	RoleGenre    = "Genre"
)

// UnknownGenre is suggested when no block qualifies as genre.
const UnknownGenre = "unknown"

// Suggestions maps a role to the text suggested for it.
type Suggestions map[string]string

// centreTolerance is the share of the page width a title may sit off centre,
// and the horizontal slack for a genre below the title.
const centreTolerance = 0.2

// Suggest assigns blocks to roles by their position on a page of the given
// width. Ties go to the block that comes first. One block may fill several
// roles.
func Suggest(blocks []Block, pageWidth float64) Suggestions {
	s := Suggestions{}
	if len(blocks) == 0 || pageWidth == 0 {
		return s
	}

	s[RoleVoice] = pick(blocks, func(a, b Block) bool { return a.X < b.X }).Text
	s[RoleComposer] = pick(blocks, func(a, b Block) bool { return a.right() > b.right() }).Text

	tol := centreTolerance * pageWidth
	var centred []Block
	for _, b := range blocks {
		if math.Abs(b.X+b.Width/2-pageWidth/2) <= tol {
			centred = append(centred, b)
		}
	}
	taller := func(a, b Block) bool { return a.Height > b.Height }
	var title Block
	if len(centred) > 0 {
		title = pick(centred, taller)
	} else {
		title = pick(blocks, taller)
	}
	s[RoleTitle] = title.Text

	var genres []Block
	for _, b := range blocks {
		below := b.Y > title.bottom() && math.Abs(b.X-title.X) <= tol
		beside := b.X > title.right() && b.Y >= title.Y && b.bottom() <= title.bottom()
		if below || beside {
			genres = append(genres, b)
		}
	}
	if len(genres) > 0 {
		s[RoleGenre] = pick(genres, func(a, b Block) bool { return a.X < b.X }).Text
	} else {
		s[RoleGenre] = UnknownGenre
	}
	return s
}

// pick returns the first block no other block beats.
func pick(blocks []Block, better func(a, b Block) bool) Block {
	best := blocks[0]
	for _, b := range blocks[1:] {
		if better(b, best) {
			best = b
		}
	}
	return best
}
