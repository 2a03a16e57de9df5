// Package main (cmd/factoryctl) is a command line client for the collection factory API.
//
// Example usage:
//
//	factoryctl --predecessor alice create --name abc --metadata @meta.json \
//	    --size 100 --price 1 --royalty alice=500 --royalty-percent 500 \
//	    --deposit 10000000000000000000000000 --wait
//	factoryctl exists abc.factory
//	factoryctl balance alice
package main
