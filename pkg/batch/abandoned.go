package batch

import (
	"github.com/paprikadb/paprika/pkg/page"
	"github.com/paprikadb/paprika/pkg/pagemanager"
)

// reclaimAbandonedChain walks the abandoned-page linked list starting at
// head. Links whose originating batch id is older than
// minLiveReaderBatchID are fully reclaimable (both the addresses they
// record and the link page itself); links at or after that watermark
// are kept, relinked into a (possibly shorter) chain starting at the
// returned head.
func reclaimAbandonedChain(pm *pagemanager.Manager, head page.DbAddress, minLiveReaderBatchID uint32) (reclaimable []page.DbAddress, keptHead page.DbAddress) {
	var keptLinks []page.DbAddress

	cur := head
	for !cur.IsNull() {
		link := page.AsAbandonedPage(pm.GetAt(cur))
		next := link.Next()

		if link.BatchIDOfOrigin() < minLiveReaderBatchID {
			for i := 0; i < int(link.Count()); i++ {
				reclaimable = append(reclaimable, link.At(i))
			}
			reclaimable = append(reclaimable, cur)
		} else {
			keptLinks = append(keptLinks, cur)
		}
		cur = next
	}

	// Relink the kept portion of the chain in its original (newest-first)
	// order, the order the walk above visited it in.
	keptHead = page.Null
	for i := len(keptLinks) - 1; i >= 0; i-- {
		link := page.AsAbandonedPage(pm.GetAt(keptLinks[i]))
		link.SetNext(keptHead)
		keptHead = keptLinks[i]
	}

	return reclaimable, keptHead
}

// appendAbandonedChain prepends a new link (or chain of links, if addrs
// overflows a single page) holding this batch's freshly abandoned
// addresses onto keptHead, returning the new chain head.
func appendAbandonedChain(c *Context, keptHead page.DbAddress, addrs []page.DbAddress) (page.DbAddress, error) {
	if len(addrs) == 0 {
		return keptHead, nil
	}

	head := keptHead
	for start := 0; start < len(addrs); {
		p, addr, err := c.GetNewPage()
		if err != nil {
			return page.Null, err
		}
		link := page.AsAbandonedPage(p)
		link.Init(c.batchID)

		n := start
		for n < len(addrs) && link.Push(addrs[n]) {
			n++
		}
		link.SetNext(head)
		head = addr
		start = n
	}

	return head, nil
}
