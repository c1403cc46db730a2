package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Importer expands a playlist and resolves its entries in fixed-size
// batches. Each batch runs concurrently and is awaited before the next one
// starts.
type Importer struct {
	resolver      Resolver
	batchSize     int
	progressEvery int
}

func NewImporter(resolver Resolver, batchSize, progressEvery int) *Importer {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Importer{resolver: resolver, batchSize: batchSize, progressEvery: progressEvery}
}

// Import appends the playable entries of source to p's queue. Entries that
// fail to resolve are skipped. Progress goes to n after every progressEvery
// batches and after the last one. When the import finishes and p is idle,
// playback starts.
//
// Stop, Clear and Leave on p abandon the import; Import then returns what
// was added so far together with context.Canceled. Closing p ends it with
// ErrClosed.
func (im *Importer) Import(ctx context.Context, p *Player, source string, n Notifier) (ImportSummary, error) {
	var sum ImportSummary

	ictx, epoch, finish, err := p.beginImport(ctx)
	if err != nil {
		return sum, err
	}
	defer finish()

	exp, err := im.resolver.Expand(ictx, source)
	if err != nil {
		return sum, err
	}
	inputs := exp.Inputs
	if limit := p.Settings().PlaylistLimit; limit > 0 && len(inputs) > limit {
		zlog.Info().Str("guildID", p.GuildID()).Int("entries", len(inputs)).Int("limit", limit).Msg("truncating playlist")
		inputs = inputs[:limit]
	}
	sum.Total = len(inputs)

	log := zlog.With().Str("guildID", p.GuildID()).Str("source", source).Stringer("kind", exp.Kind).Logger()
	log.Info().Int("total", sum.Total).Msg("importing playlist")

	var stopped error
	batches := (len(inputs) + im.batchSize - 1) / im.batchSize
	for b := 0; b < batches; b++ {
		if ictx.Err() != nil {
			break
		}
		start := b * im.batchSize
		end := min(start+im.batchSize, len(inputs))

		added, err := im.runBatch(ictx, p, epoch, inputs[start:end], log)
		sum.Added += added
		if err != nil {
			stopped = err
			break
		}

		last := b == batches-1
		if n != nil && im.progressEvery > 0 && ((b+1)%im.progressEvery == 0 || last) {
			n.Notify(fmt.Sprintf("Progress: %d/%d songs processed...", end, sum.Total))
		}
	}

	if errors.Is(stopped, ErrClosed) || p.ctx.Err() != nil {
		log.Info().Int("added", sum.Added).Msg("player closed during playlist import")
		return sum, errors.Wrap(ErrClosed, "import abandoned")
	}
	if stopped != nil || ictx.Err() != nil {
		log.Info().Int("added", sum.Added).Msg("playlist import abandoned")
		return sum, errors.Wrap(context.Canceled, "import abandoned")
	}

	log.Info().Int("added", sum.Added).Int("failed", sum.Total-sum.Added).Msg("playlist import finished")
	if sum.Added > 0 {
		p.StartIfIdle()
	}
	return sum, nil
}

// runBatch resolves inputs concurrently and appends each success as soon as
// it arrives. It returns ErrDiscarded once the queue was cleared and
// ErrClosed once the player is gone.
func (im *Importer) runBatch(ctx context.Context, p *Player, epoch uint64, inputs []string, log zerolog.Logger) (int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		added    int
		rejected error
	)
	for _, in := range inputs {
		wg.Add(1)
		go func(in string) {
			defer wg.Done()
			t, err := im.resolver.Resolve(ctx, in)
			if err != nil {
				log.Debug().Err(err).Str("input", in).Msg("skipping playlist entry")
				return
			}
			err = p.appendIf(epoch, t)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				added++
			case rejected == nil || errors.Is(err, ErrClosed):
				rejected = err
			}
		}(in)
	}
	wg.Wait()
	return added, rejected
}
