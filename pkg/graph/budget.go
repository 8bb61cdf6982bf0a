package graph

const DefaultArticleBudget = 12

var articleBudgets = map[int]int{
	1: 5,
	2: 12,
	3: 20,
}

// ArticleBudget returns how many articles are gathered for depth.
func ArticleBudget(depth int) int {
	if n, ok := articleBudgets[depth]; ok {
		return n
	}
	return DefaultArticleBudget
}
