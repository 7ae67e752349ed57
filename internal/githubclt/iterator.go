package githubclt

import (
	"context"

	"github.com/google/go-github/v59/github"
)

const pageSize = 100

type fetchPageFn[T any] func(ctx context.Context, page int) ([]*T, *github.Response, error)

// Iterator returns the elements of a paginated github list endpoint.
// A page is only fetched when all elements of the previous page were
// returned.
type Iterator[T any] struct {
	ctx   context.Context
	fetch fetchPageFn[T]

	unseen []*T

	nextPage int
	finished bool
}

func newIterator[T any](ctx context.Context, fetch fetchPageFn[T]) *Iterator[T] {
	return &Iterator[T]{
		ctx:      ctx,
		fetch:    fetch,
		nextPage: 1,
	}
}

// Next returns the next element.
// When the last element was returned, nil is returned.
func (it *Iterator[T]) Next() (*T, error) {
	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return result, nil
	}

	if it.finished {
		return nil, nil
	}

	elems, resp, err := it.fetch(it.ctx, it.nextPage)
	if err != nil {
		return nil, err
	}

	if resp == nil || resp.NextPage == 0 || len(elems) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	it.unseen = elems

	return it.Next()
}

// All returns all remaining elements.
func (it *Iterator[T]) All() ([]*T, error) {
	var result []*T

	for {
		elem, err := it.Next()
		if err != nil {
			return nil, err
		}

		if elem == nil {
			return result, nil
		}

		result = append(result, elem)
	}
}
