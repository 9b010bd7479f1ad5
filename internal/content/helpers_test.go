package content

import "github.com/onnwee/swipestack/internal/ranking"

func defaultContext() ranking.ContextWeights {
	return ranking.DefaultWeights().Context
}
