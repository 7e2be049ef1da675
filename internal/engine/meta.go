package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tradesim/types"
)

// buildMeta derives the run identifier from the run's own description,
// so repeating a run with identical inputs yields the same UID and
// upserts cleanly.
func (bt *Backtest) buildMeta() types.RunMeta {
	today, err := bt.dates.Today()
	if err != nil {
		today = bt.dates.End()
	}
	// The clock advances before the first period opens, so the run
	// starts one date past the warm-up window.
	start := bt.cfg.Buffer + 1
	if start >= len(bt.index) {
		start = len(bt.index) - 1
	}
	meta := types.RunMeta{
		Factor:   bt.info.Factor,
		Market:   bt.info.Market,
		Asset:    bt.info.Asset,
		Hedge:    bt.info.Hedge,
		Base:     bt.info.Base,
		Pipeline: bt.pipelineName,
		Model:    bt.info.Model,
		Params:   bt.info.Params,
		Start:    bt.index[start],
		End:      today,
		Updated:  time.Now().UTC(),
	}
	meta.UID = metaUID(meta)
	return meta
}

func metaUID(meta types.RunMeta) string {
	var sb strings.Builder
	sb.WriteString(strings.Join([]string{
		meta.Factor, meta.Market, meta.Asset, meta.Hedge,
		meta.Base, meta.Pipeline, meta.Model,
	}, "|"))

	keys := make([]string, 0, len(meta.Params))
	for k := range meta.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "|%s=%s", k, meta.Params[k])
	}
	return uuid.NewMD5(uuid.NameSpaceDNS, []byte(sb.String())).String()
}
