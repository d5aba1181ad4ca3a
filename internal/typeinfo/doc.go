// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains code relating to Go types and their processing in
nestql. As much as possible, reflection code is limited to this package. It
contains the logic for extracting information from and scanning query
results into types passed by the user. Compiled queries carry no
placeholders, so everything here serves output decoding.
*/
package typeinfo
