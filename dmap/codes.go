// Copyright 2016 The Daap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dmap

// The content-code registry. The table is part of the wire contract:
// it is served verbatim to clients via /content-codes and consulted to
// type every tag found while decoding inbound chunk streams. It is a
// plain literal, populated at build time; there is no reflection.

// Entry describes one content code.
type Entry struct {
	Code string // the 4-character tag
	Name string // the protocol name, e.g. "daap.songartist"
	Kind Kind
}

// Number returns the big-endian integer representation of the
// entry's 4 ASCII characters, as sent in "mcnm".
func (e Entry) Number() uint32 {
	return uint32(e.Code[0])<<24 | uint32(e.Code[1])<<16 | uint32(e.Code[2])<<8 | uint32(e.Code[3])
}

// codes lists every content code the server understands, in the order
// they are reported by /content-codes.
var codes = []Entry{
	// DMAP core.
	{"mstt", "dmap.status", Int},
	{"miid", "dmap.itemid", Int},
	{"minm", "dmap.itemname", String},
	{"mikd", "dmap.itemkind", Byte},
	{"mper", "dmap.persistentid", Long},
	{"mcon", "dmap.container", Container},
	{"mcti", "dmap.containeritemid", Int},
	{"mpco", "dmap.parentcontainerid", Int},
	{"msts", "dmap.statusstring", String},
	{"mimc", "dmap.itemcount", Int},
	{"mctc", "dmap.containercount", Int},
	{"mrco", "dmap.returnedcount", Int},
	{"mtco", "dmap.specifiedtotalcount", Int},
	{"mlcl", "dmap.listing", Container},
	{"mlit", "dmap.listingitem", Container},
	{"mbcl", "dmap.bag", Container},
	{"mdcl", "dmap.dictionary", Container},

	// Server info.
	{"msrv", "dmap.serverinforesponse", Container},
	{"msau", "dmap.authenticationmethod", Byte},
	{"msas", "dmap.authenticationschemes", Byte},
	{"mslr", "dmap.loginrequired", Bool},
	{"mpro", "dmap.protocolversion", Version},
	{"msal", "dmap.supportsautologout", Bool},
	{"msup", "dmap.supportsupdate", Bool},
	{"mspi", "dmap.supportspersistentids", Bool},
	{"msex", "dmap.supportsextensions", Bool},
	{"msbr", "dmap.supportsbrowse", Bool},
	{"msqy", "dmap.supportsquery", Bool},
	{"msix", "dmap.supportsindex", Bool},
	{"msrs", "dmap.supportsresolve", Bool},
	{"mstm", "dmap.timeoutinterval", Int},
	{"msdc", "dmap.databasescount", Int},

	// Content codes discovery.
	{"mccr", "dmap.contentcodesresponse", Container},
	{"mcnm", "dmap.contentcodesnumber", Int},
	{"mcna", "dmap.contentcodesname", String},
	{"mcty", "dmap.contentcodestype", Short},

	// Login and update.
	{"mlog", "dmap.loginresponse", Container},
	{"mlid", "dmap.sessionid", Int},
	{"mupd", "dmap.updateresponse", Container},
	{"musr", "dmap.serverrevision", Int},
	{"muty", "dmap.updatetype", Bool},
	{"mudl", "dmap.deletedidlisting", Container},

	// DAAP server.
	{"apro", "daap.protocolversion", Version},
	{"avdb", "daap.serverdatabases", Container},
	{"abro", "daap.databasebrowse", Container},
	{"abal", "daap.browsealbumlisting", Container},
	{"abar", "daap.browseartistlisting", Container},
	{"abcp", "daap.browsecomposerlisting", Container},
	{"abgn", "daap.browsegenrelisting", Container},
	{"adbs", "daap.databasesongs", Container},
	{"aply", "daap.databaseplaylists", Container},
	{"abpl", "daap.baseplaylist", Bool},
	{"apso", "daap.playlistsongs", Container},
	{"arsv", "daap.resolve", Container},
	{"arif", "daap.resolveinfo", Container},

	// Song metadata.
	{"asal", "daap.songalbum", String},
	{"asar", "daap.songartist", String},
	{"asbt", "daap.songbeatsperminute", Short},
	{"asbr", "daap.songbitrate", Short},
	{"ascm", "daap.songcomment", String},
	{"asco", "daap.songcompilation", Bool},
	{"ascp", "daap.songcomposer", String},
	{"asda", "daap.songdateadded", Date},
	{"asdm", "daap.songdatemodified", Date},
	{"asdc", "daap.songdisccount", Short},
	{"asdn", "daap.songdiscnumber", Short},
	{"asdb", "daap.songdisabled", Bool},
	{"aseq", "daap.songeqpreset", String},
	{"asfm", "daap.songformat", String},
	{"asgn", "daap.songgenre", String},
	{"asdt", "daap.songdescription", String},
	{"asrv", "daap.songrelativevolume", Byte},
	{"assr", "daap.songsamplerate", Int},
	{"assz", "daap.songsize", Int},
	{"asst", "daap.songstarttime", Int},
	{"assp", "daap.songstoptime", Int},
	{"astm", "daap.songtime", Int},
	{"astc", "daap.songtrackcount", Short},
	{"astn", "daap.songtracknumber", Short},
	{"asur", "daap.songuserrating", Byte},
	{"asyr", "daap.songyear", Short},
	{"asdk", "daap.songdatakind", Byte},
	{"asul", "daap.songdataurl", String},

	// iTunes extensions.
	{"aeNV", "com.apple.itunes.norm-volume", Int},
	{"aeSP", "com.apple.itunes.smart-playlist", Bool},
	{"aeSV", "com.apple.itunes.music-sharing-version", Int},
}

var byCode = make(map[string]Entry, len(codes))

func init() {
	for _, e := range codes {
		byCode[e.Code] = e
	}
}

// Lookup returns the registry entry for a tag.
func Lookup(tag string) (Entry, bool) {
	e, ok := byCode[tag]
	return e, ok
}

// Entries returns all registered content codes in their canonical
// order.
func Entries() []Entry {
	out := make([]Entry, len(codes))
	copy(out, codes)
	return out
}

// ContentCodesResponse builds the /content-codes response: an "mccr"
// container holding a status and one dictionary per registry entry.
func ContentCodesResponse() *Chunk {
	resp := NewContainer("mccr", NewInt("mstt", 200))
	for _, e := range codes {
		resp.Add(NewContainer("mdcl",
			NewInt("mcnm", e.Number()),
			NewString("mcna", e.Name),
			NewShort("mcty", e.Kind.typeCode()),
		))
	}
	return resp
}
