package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name       string
		paging     Paging
		total      int
		totalPages int
		hasNext    bool
		hasPrev    bool
	}{
		{"empty", Paging{Page: 1, PageSize: 20}, 0, 0, false, false},
		{"first of three", Paging{Page: 1, PageSize: 2}, 5, 3, true, false},
		{"middle", Paging{Page: 2, PageSize: 2}, 5, 3, true, true},
		{"last", Paging{Page: 3, PageSize: 2}, 5, 3, false, true},
		{"past the end", Paging{Page: 4, PageSize: 2}, 5, 3, false, true},
		{"exact fit", Paging{Page: 1, PageSize: 5}, 5, 1, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage[int](nil, tt.paging, tt.total)
			require.NotNil(t, p.Items)
			require.Equal(t, tt.total, p.TotalCount)
			require.Equal(t, tt.totalPages, p.TotalPages)
			require.Equal(t, tt.hasNext, p.HasNextPage)
			require.Equal(t, tt.hasPrev, p.HasPreviousPage)
		})
	}
}

func TestPaging_Offset(t *testing.T) {
	require.Equal(t, 0, Paging{Page: 1, PageSize: 10}.Offset())
	require.Equal(t, 20, Paging{Page: 3, PageSize: 10}.Offset())
	require.Equal(t, 0, Paging{Page: 0, PageSize: 10}.Offset())
	require.Equal(t, math.MaxInt-math.MaxInt%100, Paging{Page: math.MaxInt/100 + 1, PageSize: 100}.Offset())
	require.Equal(t, math.MaxInt, Paging{Page: math.MaxInt/100 + 2, PageSize: 100}.Offset())
	require.Equal(t, math.MaxInt, Paging{Page: math.MaxInt, PageSize: 2}.Offset())
}
